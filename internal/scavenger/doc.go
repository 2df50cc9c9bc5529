// Package scavenger holds the domain types shared by the probe-request
// de-anonymization pipeline.
//
// The pipeline is split into numbered layers, each in its own package:
//
//	l1capture   capture batch decoding, pcap extraction, sniffer clock alignment
//	l2window    interval windowing of the detection stream
//	l3correlate cross-sniffer fingerprint correlation
//	l4aggregate grouping by (information element, claimed id)
//	l5localize  multilateration, density regions, region proximity
//	l6identity  identity resolution against the registry
//
// The pipeline package is the composition root: it imports every layer,
// none of the layers import pipeline/. Storage adapters live under
// storage/ and implement l6identity.Registry.
package scavenger
