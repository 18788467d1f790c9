package kibana

// VersionToken is the optimistic-concurrency pair the backend requires to
// accept a conditional write. A write supplying a stale token is rejected
// with a conflict.
type VersionToken struct {
	SeqNo       int64
	PrimaryTerm int64
}

// Alert is the backend's current representation of one alert at fetch time.
// It is read immediately before each mutating operation and discarded after
// use, never cached across calls, so mutations always act on fresh state.
type Alert struct {
	ID        string
	Tags      []string
	Severity  Severity
	RuleName  string
	Timestamp string
	Version   VersionToken
}

// UpdatePatch is the partial field set applied by a conditional write.
// Nil fields are left untouched by the backend: a tag update never clears
// the severity and vice versa.
type UpdatePatch struct {
	Tags     *[]string
	Severity *Severity
}

// isEmpty reports whether the patch changes nothing.
func (p UpdatePatch) isEmpty() bool {
	return p.Tags == nil && p.Severity == nil
}
