package ids

import "github.com/segmentio/ksuid"

// New returns a sortable unique id, used for trace and job-run ids.
func New() string {
	return ksuid.New().String()
}
