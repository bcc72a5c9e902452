package mesh

import "slices"

// EliminateSmallClusters removes, in place, every cluster whose point count
// is known and at most minPoints, keeping the relative order of the rest.
// Clusters whose points have not been derived are never removed.
func EliminateSmallClusters(clusters []*Cluster, minPoints int) []*Cluster {
	return slices.DeleteFunc(clusters, func(c *Cluster) bool {
		if c == nil {
			return true
		}
		n := c.NumPoints()
		return n >= 0 && n <= minPoints
	})
}

// DeleteEmptyClusters removes clusters that were derived with zero points.
func DeleteEmptyClusters(clusters []*Cluster) []*Cluster {
	return EliminateSmallClusters(clusters, 0)
}
