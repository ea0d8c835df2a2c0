// Package platform papers over filesystem differences between Unix and
// Windows for the archive extraction path, which restores the permission
// bits stored in release archives.
package platform
