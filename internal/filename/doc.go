// Package filename derives safe, collision-free destination names for
// downloaded resources.
//
// Names come from the Content-Disposition header when the origin supplies
// one (the RFC 5987 filename* parameter wins over filename), otherwise from
// the last segment of the URL path. Every candidate goes through Sanitize,
// and Reserve claims the final path with an exclusive create so concurrent
// transfers never share a destination.
package filename
