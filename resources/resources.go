// Package resources declares the resource tags used to key the versioning
// registry, one per serialized record kind this module persists.
package resources

type Resource uint32

const (
	RT_VERSION        Resource = 1
	RT_DA             Resource = 2
	RT_COMPONENT_TREE Resource = 3
	RT_BTREE_NODE     Resource = 4
)
