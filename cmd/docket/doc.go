// Command docket is the CLI for the docket OCR batch daemon. Most
// commands talk to a running docketd over its HTTP API; config and
// cleanup commands operate on local files directly.
package main
