// Package srt implements an embedded SRT endpoint library: a listening
// Server that accepts multiple SRT connections with application-mediated
// admission control, and a sending Client that maintains a single outbound
// SRT connection with a bounded, back-pressured send queue. Both wrap
// github.com/zsiec/srtgo and surface a callback-driven interface to the
// embedding process.
package srt
