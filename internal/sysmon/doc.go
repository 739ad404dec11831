// Package sysmon samples host performance (CPU, memory, root disk) and
// publishes it as one JSON document on the host's system_performance topic,
// which every metric sensor in the discovery message reads with its own
// value template.
package sysmon
