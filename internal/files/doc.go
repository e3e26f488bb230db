// Package files locates pipeline input files on disk.
//
// Accident chunks, yearly population tables and per-year aggregated outputs
// all follow a "<prefix><year or part>.<ext>" naming scheme. Discovery lists
// them in name order and YearFromName recovers the year from the name:
//
//	d := files.NewDiscovery(paths.BaseDir)
//	popFiles, err := d.FindPopulationFiles(paths.PopulationDir, "population_2")
//	year, err := files.YearFromName(popFiles[0].Name)
package files
