// Package ownership decides who may mutate an album. Ownership of an album is
// derived from its songs: every distinct song owner is a co-owner.
package ownership

import (
	"github.com/mantonx/tonearm/internal/modules/mediamodule/types"
)

// OwnerSet returns the distinct owners of the album's songs. Ownerless songs
// contribute nothing.
func OwnerSet(album *types.Album) map[string]struct{} {
	owners := make(map[string]struct{})
	if album == nil {
		return owners
	}
	for _, r := range album.Records {
		if r.OwnerID == nil || *r.OwnerID == "" {
			continue
		}
		owners[*r.OwnerID] = struct{}{}
	}
	return owners
}

// IsCoOwner reports whether actorID owns at least one song on the album.
// Privilege is not considered.
func IsCoOwner(actorID string, album *types.Album) bool {
	if actorID == "" || album == nil {
		return false
	}
	for _, r := range album.Records {
		if r.OwnerID != nil && *r.OwnerID == actorID {
			return true
		}
	}
	return false
}

// IsMutator reports whether actor may change album-level metadata such as
// the cover: privileged actors always may, anyone else must be a co-owner.
func IsMutator(actor types.Actor, album *types.Album) bool {
	if actor.Privileged {
		return true
	}
	return IsCoOwner(actor.ID, album)
}
