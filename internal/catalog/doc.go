// Package catalog holds the test-vector catalog: which decoders are
// exercised, against which input samples, with which options, and what
// output each combination is expected to produce.
//
// # Catalog Format
//
// A catalog is a JSON document (comments and trailing commas allowed)
// nested decoder -> sample -> test:
//
//	{
//		"mfm": {
//			"fdd_fm": {
//				"path": "samples/floppy",
//				"all": {
//					"options": "data_rate=125000",
//					"annotate": "fields",
//					"desc": "FM floppy, every annotation row",
//					"size": 48211,
//					"crc": "0x1c291ca3",
//					"blake2b": "…128 hex…",
//					"sha256": "…64 hex…"
//				}
//			}
//		}
//	}
//
// The digest fields (size, crc, blake2b, sha256) are either all present
// or all absent. "path" is reserved at sample level and points at the
// directory holding <sample>.sr.
//
// Several catalogs can be merged; a test defined twice is a conflict, and
// so is a sample whose path differs from where it was first declared. A
// key repeated inside one object is malformed.
package catalog
