package nmx

import (
	"context"
	"errors"
	"fmt"
	"io"
)

type PipelineStats struct {
	Records   int
	Skipped   int
	Packets   int
	Eventlets int
	// Late counts eventlets released by the reorder stage after a newer one,
	// which the clusterer refuses. With strict order the first one stops the
	// run instead.
	Late    int
	Events  int
	Decode  DecodeStats
	Cluster ClustererStats
}

// Pipeline moves decoded records through packetizing, packet reordering,
// eventlet reordering and clustering.
type Pipeline struct {
	reader     Reader
	packetSize int
	skip       int
	maxRecords int
	verbosity  int
	strict     bool

	packets   *LatencyQueue
	chrono    *ChronoQ
	clusterer *Clusterer
}

func NewPipeline(reader Reader, config Configuration, pool *MicroclusterPool) *Pipeline {
	return &Pipeline{
		reader:     reader,
		packetSize: config.PacketSize,
		skip:       config.Skip,
		maxRecords: config.MaxRecords,
		verbosity:  config.Verbosity,
		strict:     config.StrictOrder,
		packets:    NewLatencyQueue(config.LatencyPackets),
		chrono:     NewChronoQ(config.LatencyEventlets),
		clusterer:  NewClusterer(config.ClusterParams(), pool),
	}
}

func (p *Pipeline) Clusterer() *Clusterer {
	return p.clusterer
}

// Run reads every record, hands each event to sink and drains all stages at
// the end of the stream. A cancelled context stops it between records
// without draining.
func (p *Pipeline) Run(ctx context.Context, sink func(SimpleEvent) error) (PipelineStats, error) {
	var stats PipelineStats
	for index := 0; ; index++ {
		if err := ctx.Err(); err != nil {
			return p.finish(stats), err
		}
		if p.maxRecords > 0 && index >= p.maxRecords {
			if p.verbosity > 0 {
				logger.Info("Max records reached", "pipeline")
			}
			break
		}
		eventlets, err := p.reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return p.finish(stats), fmt.Errorf("error reading record %d: %w", index, err)
		}
		if index < p.skip {
			stats.Skipped++
			continue
		}
		stats.Records++
		stats.Eventlets += len(eventlets)
		if p.verbosity > 2 {
			message := fmt.Sprintf("Record %d with %d eventlets", p.reader.Record(), len(eventlets))
			logger.Info(message, "pipeline")
		}

		for _, packet := range Packetize(eventlets, p.packetSize) {
			p.packets.Push(packet)
			stats.Packets++
		}
		if err := p.advance(&stats, sink); err != nil {
			return p.finish(stats), err
		}
	}

	if err := p.drain(&stats, sink); err != nil {
		return p.finish(stats), err
	}
	return p.finish(stats), nil
}

func (p *Pipeline) finish(stats PipelineStats) PipelineStats {
	stats.Decode = p.reader.Stats()
	stats.Cluster = p.clusterer.Stats()
	return stats
}

func (p *Pipeline) advance(stats *PipelineStats, sink func(SimpleEvent) error) error {
	for p.packets.Ready() {
		packet, _ := p.packets.Pop()
		p.chrono.PushPacket(packet)
	}
	for p.chrono.Ready() {
		e, _ := p.chrono.Pop()
		if err := p.insert(stats, e); err != nil {
			return err
		}
	}
	return p.emit(stats, sink)
}

func (p *Pipeline) drain(stats *PipelineStats, sink func(SimpleEvent) error) error {
	for !p.packets.Empty() {
		packet, _ := p.packets.Pop()
		p.chrono.PushPacket(packet)
	}
	err := p.chrono.Drain(func(e Eventlet) error {
		return p.insert(stats, e)
	})
	if err != nil {
		return err
	}
	if err := p.clusterer.Dump(); err != nil {
		return fmt.Errorf("error flushing clusters: %w", err)
	}
	return p.emit(stats, sink)
}

func (p *Pipeline) insert(stats *PipelineStats, e Eventlet) error {
	err := p.clusterer.Insert(e)
	if errors.Is(err, ErrOutOfOrder) && !p.strict {
		stats.Late++
		logger.Warn(err.Error(), "pipeline")
		return nil
	}
	return err
}

func (p *Pipeline) emit(stats *PipelineStats, sink func(SimpleEvent) error) error {
	if !p.clusterer.EventsReady() {
		return nil
	}
	for _, event := range p.clusterer.PopEvents() {
		stats.Events++
		if err := sink(event); err != nil {
			return fmt.Errorf("error handing over event %d: %w", stats.Events-1, err)
		}
	}
	return nil
}
