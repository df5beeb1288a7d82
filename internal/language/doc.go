// Package language normalizes OCR language codes. The recognition engine
// expects tesseract-style ISO 639-2 codes joined with "+", e.g. "heb+eng".
package language
