package main

// Error codes returned in ErrorResponse.Code.
const (
	CodeInvalidRequest     = "invalid_request"
	CodeInvalidImage       = "invalid_image"
	CodeLayoutMismatch     = "layout_mismatch"
	CodeModelUnavailable   = "model_unavailable"
	CodeProcessingError    = "processing_error"
	CodeCacheError         = "cache_error"
	CodeInvalidFileName    = "invalid_file_name"
	CodeCacheEntryNotFound = "not_found"
)

const (
	MsgMissingImage = "The request has no image. Upload the captcha screenshot in the multipart field \"image\"."

	MsgInvalidImage = "Could not load image. Upload a PNG, JPEG, GIF or BMP screenshot of the captcha."

	MsgLayoutMismatch = "The captcha does not have one target for every glyph, so it cannot be solved. Try a fresh captcha."

	MsgModelUnavailable = "The models are not loaded. Try again once the service has started."

	MsgProcessing = "Something went wrong while solving the captcha."

	MsgCache = "The annotated image could not be saved."

	MsgInvalidFileName = "The file name is not valid."

	MsgNotFound = "The cached image does not exist or has expired."
)
