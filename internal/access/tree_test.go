package access

import (
	"reflect"
	"testing"
)

func TestBuildTreeGroupsByFirstOccurrence(t *testing.T) {
	rows := []TreeRow{
		{ApplicationID: "a1", ApplicationName: "Retail", BrandID: "b1", BrandName: "North", PlatformID: "p1", PlatformName: "Web"},
		{ApplicationID: "a1", ApplicationName: "Retail", BrandID: "b1", BrandName: "North", PlatformID: "p2", PlatformName: "Mobile"},
		{ApplicationID: "a2", ApplicationName: "Wholesale", BrandID: "b1", BrandName: "North", PlatformID: "p1", PlatformName: "Web"},
		{ApplicationID: "a1", ApplicationName: "Retail", BrandID: "b2", BrandName: "South", PlatformID: "p1", PlatformName: "Web"},
	}

	tree := BuildTree(rows)

	want := []ApplicationNode{
		{
			ID: "a1", Name: "Retail",
			Brands: []BrandNode{
				{ID: "b1", Name: "North", Platforms: []PlatformNode{{ID: "p1", Name: "Web"}, {ID: "p2", Name: "Mobile"}}},
				{ID: "b2", Name: "South", Platforms: []PlatformNode{{ID: "p1", Name: "Web"}}},
			},
		},
		{
			ID: "a2", Name: "Wholesale",
			Brands: []BrandNode{
				{ID: "b1", Name: "North", Platforms: []PlatformNode{{ID: "p1", Name: "Web"}}},
			},
		},
	}
	if !reflect.DeepEqual(tree, want) {
		t.Fatalf("tree mismatch:\n got %+v\nwant %+v", tree, want)
	}
}

func TestBuildTreeEmptyInput(t *testing.T) {
	if tree := BuildTree(nil); tree != nil {
		t.Fatalf("expected nil tree, got %+v", tree)
	}
}

func TestBuildTreeKeepsDuplicateRows(t *testing.T) {
	rows := []TreeRow{
		{ApplicationID: "a1", BrandID: "b1", PlatformID: "p1"},
		{ApplicationID: "a1", BrandID: "b1", PlatformID: "p1"},
	}
	tree := BuildTree(rows)
	if len(tree) != 1 || len(tree[0].Brands) != 1 {
		t.Fatalf("unexpected shape: %+v", tree)
	}
	if got := len(tree[0].Brands[0].Platforms); got != 2 {
		t.Fatalf("expected duplicate rows preserved, got %d platforms", got)
	}
}
