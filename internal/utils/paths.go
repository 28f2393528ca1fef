// Package utils holds small helpers shared by the CLI commands.
package utils

import "path/filepath"

// ResolvePath resolves a path relative to a base directory. Absolute paths
// are returned unchanged. Experiment files reference their cohort CSV and
// split plans this way, so an experiment directory stays relocatable.
func ResolvePath(path, baseDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(baseDir, path)
}

// ResolvePaths resolves every path in the list relative to a base directory.
func ResolvePaths(paths []string, baseDir string) []string {
	if len(paths) == 0 {
		return nil
	}
	resolved := make([]string, 0, len(paths))
	for _, path := range paths {
		resolved = append(resolved, ResolvePath(path, baseDir))
	}
	return resolved
}
