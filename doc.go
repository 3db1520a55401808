// Package zipr reads ZIP archives with random access to individual
// entries.
//
// The central directory is parsed once per physical file and indexed for
// fast name lookup; handles opened against the same file, under any path
// naming it, share that parse and the underlying descriptor via reference
// counting. Entry payloads are streamed, decompressing DEFLATED data on
// the fly with flate readers cached per handle.
//
//	a, err := zipr.Open("app.jar")
//	if err != nil {
//		// ...
//	}
//	defer a.Close()
//
//	for e := range a.Entries() {
//		rc, err := a.Open(e)
//		// ...
//	}
//
// Closing an Archive closes every reader it handed out. Callers should
// close archives explicitly (defer a.Close()); a best-effort cleanup
// releases the shared file state if a handle is dropped unclosed, but it
// is not a substitute.
package zipr
