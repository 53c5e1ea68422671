package sonar

import (
	"fmt"
	"time"
)

// Chunk is the unit of parallel processing: a contiguous run of pings from
// one survey line. Chunks are sized by total beam count, and a chunk
// boundary never splits one ping's beams across two chunks.
type Chunk struct {
	LineID string
	Index  int
	Pings  []PingRecord
}

// Span returns the transmit time bounds of the chunk.
func (c *Chunk) Span() (time.Time, time.Time) {
	return c.Pings[0].Time, c.Pings[len(c.Pings)-1].Time
}

// BeamTotal returns the summed beam count across the chunk's pings.
func (c *Chunk) BeamTotal() int {
	total := 0
	for i := range c.Pings {
		total += c.Pings[i].BeamCount()
	}
	return total
}

// BuildChunks groups pings into per-line chunks of roughly targetBeams
// beams each. Pings must be time-ordered within each line; line order in
// the input is preserved. A single ping larger than targetBeams still
// becomes its own complete chunk.
func BuildChunks(pings []PingRecord, targetBeams int) ([]Chunk, error) {
	if targetBeams <= 0 {
		return nil, fmt.Errorf("target beam count must be positive, got %d", targetBeams)
	}

	byLine := make(map[string][]PingRecord)
	var lineOrder []string
	for _, p := range pings {
		if _, seen := byLine[p.LineID]; !seen {
			lineOrder = append(lineOrder, p.LineID)
		}
		byLine[p.LineID] = append(byLine[p.LineID], p)
	}

	var chunks []Chunk
	for _, lineID := range lineOrder {
		linePings := byLine[lineID]
		for i := 1; i < len(linePings); i++ {
			if linePings[i].Time.Before(linePings[i-1].Time) {
				return nil, &MalformedSeriesError{Series: "pings/" + lineID, Index: i, Reason: "transmit times not ordered"}
			}
		}

		index := 0
		start := 0
		beams := 0
		for i := range linePings {
			beams += linePings[i].BeamCount()
			if beams >= targetBeams {
				chunks = append(chunks, Chunk{LineID: lineID, Index: index, Pings: linePings[start : i+1]})
				index++
				start = i + 1
				beams = 0
			}
		}
		if start < len(linePings) {
			chunks = append(chunks, Chunk{LineID: lineID, Index: index, Pings: linePings[start:]})
		}
		tracef("line %s chunked into %d chunks", lineID, index+1)
	}
	return chunks, nil
}
