package srt

import srtgo "github.com/zsiec/srtgo"

// SocketStats is a point-in-time snapshot of an SRT socket's trace
// statistics. Field names mirror srt_bstats' SRT_TRACEBSTATS (as
// reproduced by ex_libsrt's common/socket_stats.h) translated to Go
// naming; nothing here is computed or derived, it is a flat copy.
type SocketStats struct {
	MsTimeStamp int64

	PktSentTotal            int64
	PktRecvTotal            int64
	PktSentUniqueTotal      int64
	PktRecvUniqueTotal      int64
	PktSndLossTotal         int64
	PktRcvLossTotal         int64
	PktRetransTotal         int64
	PktRcvRetransTotal      int64
	PktSentACKTotal         int64
	PktRecvACKTotal         int64
	PktSentNAKTotal         int64
	PktRecvNAKTotal         int64
	UsSndDurationTotal      int64
	PktSndDropTotal         int64
	PktRcvDropTotal         int64
	PktRcvUndecryptTotal    int64
	PktSndFilterExtraTotal  int64
	PktRcvFilterExtraTotal  int64
	PktRcvFilterSupplyTotal int64
	PktRcvFilterLossTotal   int64

	ByteSentTotal         uint64
	ByteRecvTotal         uint64
	ByteSentUniqueTotal   uint64
	ByteRecvUniqueTotal   uint64
	ByteRcvLossTotal      uint64
	ByteRetransTotal      uint64
	ByteSndDropTotal      uint64
	ByteRcvDropTotal      uint64
	ByteRcvUndecryptTotal uint64

	PktSent            int64
	PktRecv            int64
	PktSentUnique      int64
	PktRecvUnique      int64
	PktSndLoss         int64
	PktRcvLoss         int64
	PktRetrans         int64
	PktRcvRetrans      int64
	PktSentACK         int64
	PktRecvACK         int64
	PktSentNAK         int64
	PktRecvNAK         int64
	PktSndFilterExtra  int64
	PktRcvFilterExtra  int64
	PktRcvFilterSupply int64
	PktRcvFilterLoss   int64

	MbpsSendRate       float64
	MbpsRecvRate       float64
	UsSndDuration      int64
	PktReorderDistance int64
	PktRcvBelated      int64
	PktSndDrop         int64
	PktRcvDrop         int64
}

// statsSource is implemented by both the accepted srtgo.Conn handed out
// by Server and the outbound srtgo.Conn owned by Client.
type statsSource interface {
	Stats(clearIntervals bool) (*srtgo.Stats, error)
}

// readSocketStats snapshots src's trace statistics. A failed retrieval
// returns (nil, err); it never returns a partially populated record.
func readSocketStats(src statsSource, clearIntervals bool) (*SocketStats, error) {
	raw, err := src.Stats(clearIntervals)
	if err != nil {
		return nil, err
	}

	return &SocketStats{
		MsTimeStamp: raw.MsTimeStamp,

		PktSentTotal:            raw.PktSentTotal,
		PktRecvTotal:            raw.PktRecvTotal,
		PktSentUniqueTotal:      raw.PktSentUniqueTotal,
		PktRecvUniqueTotal:      raw.PktRecvUniqueTotal,
		PktSndLossTotal:         raw.PktSndLossTotal,
		PktRcvLossTotal:         raw.PktRcvLossTotal,
		PktRetransTotal:         raw.PktRetransTotal,
		PktRcvRetransTotal:      raw.PktRcvRetransTotal,
		PktSentACKTotal:         raw.PktSentACKTotal,
		PktRecvACKTotal:         raw.PktRecvACKTotal,
		PktSentNAKTotal:         raw.PktSentNAKTotal,
		PktRecvNAKTotal:         raw.PktRecvNAKTotal,
		UsSndDurationTotal:      raw.UsSndDurationTotal,
		PktSndDropTotal:         raw.PktSndDropTotal,
		PktRcvDropTotal:         raw.PktRcvDropTotal,
		PktRcvUndecryptTotal:    raw.PktRcvUndecryptTotal,
		PktSndFilterExtraTotal:  raw.PktSndFilterExtraTotal,
		PktRcvFilterExtraTotal:  raw.PktRcvFilterExtraTotal,
		PktRcvFilterSupplyTotal: raw.PktRcvFilterSupplyTotal,
		PktRcvFilterLossTotal:   raw.PktRcvFilterLossTotal,

		ByteSentTotal:         raw.ByteSentTotal,
		ByteRecvTotal:         raw.ByteRecvTotal,
		ByteSentUniqueTotal:   raw.ByteSentUniqueTotal,
		ByteRecvUniqueTotal:   raw.ByteRecvUniqueTotal,
		ByteRcvLossTotal:      raw.ByteRcvLossTotal,
		ByteRetransTotal:      raw.ByteRetransTotal,
		ByteSndDropTotal:      raw.ByteSndDropTotal,
		ByteRcvDropTotal:      raw.ByteRcvDropTotal,
		ByteRcvUndecryptTotal: raw.ByteRcvUndecryptTotal,

		PktSent:            raw.PktSent,
		PktRecv:            raw.PktRecv,
		PktSentUnique:      raw.PktSentUnique,
		PktRecvUnique:      raw.PktRecvUnique,
		PktSndLoss:         raw.PktSndLoss,
		PktRcvLoss:         raw.PktRcvLoss,
		PktRetrans:         raw.PktRetrans,
		PktRcvRetrans:      raw.PktRcvRetrans,
		PktSentACK:         raw.PktSentACK,
		PktRecvACK:         raw.PktRecvACK,
		PktSentNAK:         raw.PktSentNAK,
		PktRecvNAK:         raw.PktRecvNAK,
		PktSndFilterExtra:  raw.PktSndFilterExtra,
		PktRcvFilterExtra:  raw.PktRcvFilterExtra,
		PktRcvFilterSupply: raw.PktRcvFilterSupply,
		PktRcvFilterLoss:   raw.PktRcvFilterLoss,

		MbpsSendRate:       raw.MbpsSendRate,
		MbpsRecvRate:       raw.MbpsRecvRate,
		UsSndDuration:      raw.UsSndDuration,
		PktReorderDistance: raw.PktReorderDistance,
		PktRcvBelated:      raw.PktRcvBelated,
		PktSndDrop:         raw.PktSndDrop,
		PktRcvDrop:         raw.PktRcvDrop,
	}, nil
}
