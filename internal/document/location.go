// Package document extracts post text from corpus files. Only
// users[].posts[] is interpreted; within a post, string values under the keys
// "text" and "description" are tokenised into phrases. Everything else is
// skipped.
//
// Two modes share the same extraction rules: Walker scans the raw bytes
// without building a tree, and Parse + Extract operate on a materialised
// Value. Walker is the one the pipeline uses.
package document

// Location is the walker's position relative to users[].posts[].
type Location uint8

const (
	Outside Location = iota
	InUsers
	InPosts
	Unknown
)

func (l Location) String() string {
	switch l {
	case Outside:
		return "outside"
	case InUsers:
		return "users"
	case InPosts:
		return "posts"
	default:
		return "unknown"
	}
}

// Transition returns the location of the value stored under key in an
// object visited at loc. Once in a post, every key keeps the post location
// so nested structure is still searched.
func Transition(loc Location, key string) Location {
	switch {
	case loc == Outside && key == "users":
		return InUsers
	case loc == InUsers && key == "posts":
		return InPosts
	case loc == Outside, loc == InUsers:
		return Unknown
	default:
		return loc
	}
}

// IsTextField reports whether a string stored under key at location next is
// tokenised.
func IsTextField(next Location, key string) bool {
	return next == InPosts && (key == "text" || key == "description")
}

// Sink receives extracted phrases. The phrase slice is borrowed and only
// valid for the duration of the call.
type Sink interface {
	Add(p []string, delta uint32)
}
