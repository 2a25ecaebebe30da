package main

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/skymux/skymux-go/internal/cloud"
)

func TestFindChild(t *testing.T) {
	entries := []cloud.Entry{
		cloud.FileEntry(cloud.File{ID: "1", Name: "README.md"}),
		cloud.FileEntry(cloud.File{ID: "2", Name: "readme.md"}),
		cloud.FolderEntry(cloud.Folder{ID: "3", Name: "Docs"}),
	}

	// An exact match wins over a case-folded one.
	e, ok := findChild(entries, "readme.md")
	assert.True(t, ok)
	assert.Equal(t, "2", e.File.ID)

	// With no exact match, a case-folded match resolves, since the
	// backends' namespaces are case-insensitive.
	e, ok = findChild(entries, "docs")
	assert.True(t, ok)
	assert.Equal(t, "3", e.Folder.ID)

	_, ok = findChild(entries, "missing")
	assert.False(t, ok)
}
