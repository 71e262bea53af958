// Package file stores tasks as JSON files and invocation logs as JSON Lines.
package file
