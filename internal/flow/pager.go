package flow

// WrapIndex advances an index by delta with modulo wraparound, so carousel
// browsing is always circular and never clamps at the ends.
func WrapIndex(i, delta, n int) int {
	if n <= 0 {
		return 0
	}
	m := (i + delta) % n
	if m < 0 {
		m += n
	}
	return m
}

// PageIndex reads the carousel index stored under key, defaulting to 0.
func PageIndex(s *Session, key string) int {
	return s.AttrInt(key)
}

// AdvancePage moves the carousel index stored under key by delta within a
// list of n items and returns the new index.
func AdvancePage(s *Session, key string, delta, n int) int {
	i := WrapIndex(s.AttrInt(key), delta, n)
	s.SetAttr(key, i)
	return i
}
