// Package files discovers analysis inputs on disk.
//
// Discovery lists the readable tables in a directory (.csv, .tsv, .xlsx),
// skipping hidden files and spreadsheet lock files such as "~$report.xlsx".
// The repgap CLI uses it when -in names a directory.
//
// Example usage:
//
//	discovery := files.NewDiscovery("/data/exports")
//	inputs, err := discovery.FindInputs("reviews")
//	for _, in := range inputs {
//	    fmt.Println(in.Path, in.Stem())
//	}
package files
