package zipr

// Encoding converts entry names and comments between their raw bytes and
// strings. Entries whose general-purpose flag marks them UTF-8 bypass it.
type Encoding struct {
	Decode func([]byte) string
	Encode func(string) []byte
}

// Option configures an Archive at open time.
type Option func(*Archive)

// WithEncoding sets the codec used for names and comments that are not
// flagged UTF-8. The default treats everything as UTF-8.
func WithEncoding(enc Encoding) Option {
	return func(a *Archive) {
		if enc.Decode == nil || enc.Encode == nil {
			return
		}
		a.utf8 = false
		a.decode = enc.Decode
		a.encode = enc.Encode
	}
}
