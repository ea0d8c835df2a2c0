// Package distribution locates a usable CodeQL CLI binary, installs
// releases into rotating storage directories, and answers whether a newer
// compatible release is available.
package distribution
