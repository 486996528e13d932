package types

// Status is a type for the lifecycle status of a persisted resource in the
// database. This is used to determine whether the row should be included in
// queries, it is distinct from the business status of the entity itself.
type Status string

const (
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
	StatusDeleted   Status = "deleted"
)

func (s Status) String() string {
	return string(s)
}
