package training

import (
	"bufio"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protodelim"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/timestamppb"
)

// Record is one decoded loss-history export record.
type Record struct {
	RunID     string
	Series    string
	Offset    int
	Values    []float64
	FlushedAt time.Time
}

// ProtoSink writes loss-history chunks as length-delimited
// google.protobuf.Struct messages.
type ProtoSink struct {
	w     io.Writer
	runID string
	now   func() time.Time
}

// NewProtoSink creates a sink stamping every record with a fresh run id.
func NewProtoSink(w io.Writer) *ProtoSink {
	return &ProtoSink{
		w:     w,
		runID: uuid.NewString(),
		now:   time.Now,
	}
}

func (s *ProtoSink) RunID() string {
	return s.runID
}

func (s *ProtoSink) Write(series string, offset int, values []float64) error {
	list := make([]interface{}, len(values))
	for i, v := range values {
		list[i] = v
	}

	record, err := structpb.NewStruct(map[string]interface{}{
		"run_id":     s.runID,
		"series":     series,
		"offset":     offset,
		"values":     list,
		"flushed_at": timestamppb.New(s.now()).AsTime().Format(time.RFC3339Nano),
	})
	if err != nil {
		return errors.Wrap(err, "building history record")
	}

	if _, err := protodelim.MarshalTo(s.w, record); err != nil {
		return errors.Wrap(err, "writing history record")
	}
	return nil
}

// ReadRecords decodes a stream written by ProtoSink.
func ReadRecords(r io.Reader) ([]Record, error) {
	br := bufio.NewReader(r)
	var records []Record
	for {
		msg := &structpb.Struct{}
		if err := protodelim.UnmarshalFrom(br, msg); err != nil {
			if errors.Is(err, io.EOF) {
				return records, nil
			}
			return records, errors.Wrap(err, "reading history record")
		}

		fields := msg.GetFields()
		rec := Record{
			RunID:  fields["run_id"].GetStringValue(),
			Series: fields["series"].GetStringValue(),
			Offset: int(fields["offset"].GetNumberValue()),
		}
		for _, v := range fields["values"].GetListValue().GetValues() {
			rec.Values = append(rec.Values, v.GetNumberValue())
		}
		if ts := fields["flushed_at"].GetStringValue(); ts != "" {
			t, err := time.Parse(time.RFC3339Nano, ts)
			if err != nil {
				return records, errors.Wrapf(err, "parsing timestamp %q", ts)
			}
			rec.FlushedAt = t
		}
		records = append(records, rec)
	}
}
