package validation

import (
	"path"
	"strings"
	"time"
)

// landingPrefix is the logical bucket every landed object is listed under.
const landingPrefix = "landing/"

// stagingArtifactExt is the columnar staging artifact's extension. No Go
// Parquet library is available, so accepted rows are encoded as
// gzip-compressed JSON Lines instead (see artifact.go).
const stagingArtifactExt = ".jsonl.gz"

const tsLayout = "20060102_150405"

// relativePath strips the landing/ bucket prefix from a listed object path.
func relativePath(objectPath string) string {
	return strings.TrimPrefix(objectPath, landingPrefix)
}

// stagingPath builds staging/<path>/<stem>_<UTC_ts>.<ext>, preserving the
// object's parent path.
func stagingPath(relPath string, now time.Time) string {
	dir, stem := splitStem(relPath)
	name := stem + "_" + now.UTC().Format(tsLayout) + stagingArtifactExt

	return joinUnder("staging", dir, name)
}

// failedPath builds failed/<name>_<UTC_ts>, preserving the object's parent
// path so multiple sources landing under different directories don't
// collide in the failed bucket.
func failedPath(relPath string, now time.Time) string {
	dir, file := path.Split(relPath)
	name := file + "_" + now.UTC().Format(tsLayout)

	return joinUnder("failed", strings.TrimSuffix(dir, "/"), name)
}

// errorNotePath is the companion .error.txt for a failedPath object.
func errorNotePath(failed string) string {
	return failed + ".error.txt"
}

// quarantinePath builds quarantined/<name>_<UTC_ts>.jsonl.
func quarantinePath(relPath string, now time.Time) string {
	_, file := path.Split(relPath)
	name := file + "_" + now.UTC().Format(tsLayout) + ".jsonl"

	return joinUnder("quarantined", "", name)
}

func splitStem(relPath string) (dir, stem string) {
	d, file := path.Split(relPath)
	ext := path.Ext(file)

	return strings.TrimSuffix(d, "/"), strings.TrimSuffix(file, ext)
}

func joinUnder(bucket, dir, name string) string {
	if dir == "" {
		return path.Join(bucket, name)
	}

	return path.Join(bucket, dir, name)
}
