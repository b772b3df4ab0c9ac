package models

import (
	"fmt"

	"github.com/dmitrijs2005/fitsync/internal/common"
)

// Collection names one of the independently synced record logs.
type Collection string

const (
	CollectionExercise Collection = "exercise"
	CollectionDiet     Collection = "diet"
)

// AllCollections lists the collections in the order a full sync visits them.
var AllCollections = []Collection{CollectionExercise, CollectionDiet}

// ParseCollection validates a collection name.
func ParseCollection(s string) (Collection, error) {
	for _, c := range AllCollections {
		if string(c) == s {
			return c, nil
		}
	}
	return "", fmt.Errorf("%w: %q", common.ErrUnknownCollection, s)
}

// BlobName is the name of the collection's blob in the remote app-data area.
// The local file uses the same name.
func (c Collection) BlobName() string {
	return string(c) + common.CollectionBlobSuffix
}

func (c Collection) String() string { return string(c) }
