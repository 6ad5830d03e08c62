package domain

// Classification is the per-record decision made by comparing a fetched
// problem against the tracking store.
type Classification int

const (
	// ClassNew means the problem id was never seen before; it is inserted
	// and emitted for delivery.
	ClassNew Classification = iota
	// ClassChanged means the stored status differs from the observed one;
	// the row is updated and the problem emitted for delivery.
	ClassChanged
	// ClassUnchanged means the stored and observed status match; nothing
	// is mutated or delivered.
	ClassUnchanged
)

func (c Classification) String() string {
	switch c {
	case ClassNew:
		return "new"
	case ClassChanged:
		return "changed"
	case ClassUnchanged:
		return "unchanged"
	}
	return "unknown"
}
