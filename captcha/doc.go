// Package captcha solves "select the matching image" captchas. A detector
// finds the glyph tiles and the target tiles, then each glyph, read left to
// right, claims the unclaimed target a similarity model scores highest.
package captcha
