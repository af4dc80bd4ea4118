package stream

import (
	"reflect"
	"strings"
	"testing"
)

func collectPayloads(r *Reassembler, chunks ...string) []string {
	var got []string
	for _, c := range chunks {
		for _, p := range r.Push([]byte(c)) {
			got = append(got, string(p))
		}
	}
	return got
}

func TestReassemblerSingleFrame(t *testing.T) {
	r := &Reassembler{}
	got := collectPayloads(r, "data: {\"type\":\"status\",\"message\":\"loading\"}\n\n")
	want := []string{`{"type":"status","message":"loading"}`}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("payloads = %q, want %q", got, want)
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() = %d, want 0", r.Pending())
	}
}

func TestReassemblerChunkBoundaryInvariance(t *testing.T) {
	// One byte stream, many re-chunkings: the emitted payload sequence
	// must be identical regardless of where the transport cuts it.
	raw := strings.Join([]string{
		"data: {\"type\":\"status\",\"message\":\"tokenizing prompt\"}\n\n",
		"data: {\"type\":\"token\",\"text\":\"(\",\"full_text\":\"(\",\"step\":0}\n\n",
		"data: {\n" + "data:   \"type\": \"token\",\n" + "data:   \"text\": \"+ 1\"\n" + "data: }\n\n",
		"data: {\"type\":\"done\",\"reason\":\"complete\",\"is_complete\":true}\n\n",
	}, "")

	whole := collectPayloads(&Reassembler{}, raw)
	if len(whole) != 4 {
		t.Fatalf("whole-stream payload count = %d, want 4", len(whole))
	}

	for _, size := range []int{1, 2, 3, 5, 7, 16, 64, len(raw)} {
		r := &Reassembler{}
		var got []string
		for i := 0; i < len(raw); i += size {
			end := i + size
			if end > len(raw) {
				end = len(raw)
			}
			for _, p := range r.Push([]byte(raw[i:end])) {
				got = append(got, string(p))
			}
		}
		if !reflect.DeepEqual(got, whole) {
			t.Errorf("chunk size %d: payloads = %q, want %q", size, got, whole)
		}
	}
}

func TestReassemblerMultiLinePayload(t *testing.T) {
	// A JSON body split across several marker lines within one frame must
	// reconstruct to the same object as the single-line form.
	single := "data: {\"type\":\"token\",\"text\":\"x\",\"step\":3}\n\n"
	multi := "data: {\n" +
		"data:   \"type\": \"token\",\n" +
		"data:   \"text\": \"x\",\n" +
		"data:   \"step\": 3\n" +
		"data: }\n\n"

	p1 := collectPayloads(&Reassembler{}, single)
	p2 := collectPayloads(&Reassembler{}, multi)
	if len(p1) != 1 || len(p2) != 1 {
		t.Fatalf("payload counts = %d, %d, want 1, 1", len(p1), len(p2))
	}

	ev1, err := ParseEvent([]byte(p1[0]))
	if err != nil {
		t.Fatalf("ParseEvent(single) error = %v", err)
	}
	ev2, err := ParseEvent([]byte(p2[0]))
	if err != nil {
		t.Fatalf("ParseEvent(multi) error = %v", err)
	}
	if !reflect.DeepEqual(ev1, ev2) {
		t.Errorf("multi-line event = %+v, want %+v", ev2, ev1)
	}
}

func TestReassemblerIgnoresNonMarkerLines(t *testing.T) {
	tests := []struct {
		name  string
		frame string
		want  int
	}{
		{
			name:  "comment only frame",
			frame: ": keep-alive\n\n",
			want:  0,
		},
		{
			name:  "event field only frame",
			frame: "event: progress\nretry: 1000\n\n",
			want:  0,
		},
		{
			name:  "marker line mixed with field lines",
			frame: "event: progress\ndata: {\"type\":\"status\",\"message\":\"ok\"}\n\n",
			want:  1,
		},
		{
			name:  "consecutive separators",
			frame: "\n\n\n\ndata: {\"type\":\"status\"}\n\n",
			want:  1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := collectPayloads(&Reassembler{}, tt.frame)
			if len(got) != tt.want {
				t.Errorf("payload count = %d, want %d", len(got), tt.want)
			}
		})
	}
}

func TestReassemblerFlushDiscardsTrailing(t *testing.T) {
	r := &Reassembler{}
	got := collectPayloads(r, "data: {\"type\":\"done\",\"reason\":\"max_tokens\"}")
	if len(got) != 0 {
		t.Fatalf("unterminated frame emitted %d payloads, want 0", len(got))
	}

	residue := r.Flush()
	if len(residue) == 0 {
		t.Errorf("Flush() residue empty, want the buffered tail")
	}
	if r.Pending() != 0 {
		t.Errorf("Pending() after Flush = %d, want 0", r.Pending())
	}
	if again := r.Flush(); len(again) != 0 {
		t.Errorf("second Flush() residue = %q, want empty", again)
	}
}

func TestReassemblerCRLFLines(t *testing.T) {
	got := collectPayloads(&Reassembler{}, "data: {\"type\":\"status\",\"message\":\"ok\"}\r\n\n")
	if len(got) != 1 {
		t.Fatalf("payload count = %d, want 1", len(got))
	}
	if _, err := ParseEvent([]byte(got[0])); err != nil {
		t.Errorf("ParseEvent() error = %v, want nil", err)
	}
}
