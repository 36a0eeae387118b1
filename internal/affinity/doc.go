// Package affinity maps Go types to SQLite column storage affinities.
//
// The mapping is a closed set:
//
//	Go type                               Affinity
//	-------                               --------
//	int*, uint*, bool                     Integer (PrimaryKeyInteger for "id")
//	float32, float64                      Float
//	string, encoding.TextMarshaler        Text
//	[]byte                                Blob
//	*T                                    affinity of T
//	struct, map, slice, array, interface  Blob (JSON encoded)
//	chan, func, complex, unsafe.Pointer   Null
//
// For is total: every type maps to exactly one affinity and nothing in this
// package returns an error.
package affinity
