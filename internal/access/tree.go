package access

// TreeRow is one flat joined row feeding the access-tree builder. Callers
// supply rows already joined against the master tables and ordered the way
// they want platforms to appear.
type TreeRow struct {
	ApplicationID   string
	ApplicationName string
	BrandID         string
	BrandName       string
	PlatformID      string
	PlatformName    string
}

// PlatformNode is a leaf of the access tree.
type PlatformNode struct {
	ID   string `json:"platform_id"`
	Name string `json:"platform_name"`
}

// BrandNode groups the platforms granted under one brand.
type BrandNode struct {
	ID        string         `json:"brand_id"`
	Name      string         `json:"brand_name"`
	Platforms []PlatformNode `json:"platforms"`
}

// ApplicationNode is the root level of a user's access tree.
type ApplicationNode struct {
	ID     string      `json:"app_id"`
	Name   string      `json:"app_name"`
	Brands []BrandNode `json:"brands"`
}

// BuildTree folds flat rows into the application > brand > platform nesting.
// Applications appear in order of first occurrence, brands likewise within
// each application, and platforms in input order. Rows are not deduplicated:
// a repeated (application, brand, platform) row yields a repeated platform
// leaf. Empty input yields an empty (nil) tree.
func BuildTree(rows []TreeRow) []ApplicationNode {
	var tree []ApplicationNode
	appIdx := make(map[string]int)
	brandIdx := make(map[string]map[string]int)

	for _, row := range rows {
		ai, ok := appIdx[row.ApplicationID]
		if !ok {
			ai = len(tree)
			appIdx[row.ApplicationID] = ai
			brandIdx[row.ApplicationID] = make(map[string]int)
			tree = append(tree, ApplicationNode{
				ID:   row.ApplicationID,
				Name: row.ApplicationName,
			})
		}

		brands := brandIdx[row.ApplicationID]
		bi, ok := brands[row.BrandID]
		if !ok {
			bi = len(tree[ai].Brands)
			brands[row.BrandID] = bi
			tree[ai].Brands = append(tree[ai].Brands, BrandNode{
				ID:   row.BrandID,
				Name: row.BrandName,
			})
		}

		tree[ai].Brands[bi].Platforms = append(tree[ai].Brands[bi].Platforms, PlatformNode{
			ID:   row.PlatformID,
			Name: row.PlatformName,
		})
	}
	return tree
}
