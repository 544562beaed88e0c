// Package domain defines the task tracker's core types and the ports its
// adapters implement. No implementation code, only contracts.
package domain
