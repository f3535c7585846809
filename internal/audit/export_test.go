package audit

import "time"

// NewKafkaSinkForTest exposes the writer seam to external tests.
func NewKafkaSinkForTest(w messageWriter, topic string, timeout time.Duration) *KafkaSink {
	return newKafkaSink(w, topic, timeout)
}
