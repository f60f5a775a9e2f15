package cnc

import "testing"

func TestComposeVersionMatchesWireConstant(t *testing.T) {
	if got := ComposeVersion(0, 0, 16); got != Version {
		t.Fatalf("got %d, want %d", got, Version)
	}
}

func TestMetaDataRoundTrip(t *testing.T) {
	region := make([]byte, MetaDataLength)
	md, err := NewMetaData(region)
	if err != nil {
		t.Fatalf("new metadata: %v", err)
	}

	if err := md.SetToDriverBufferLength(1024); err != nil {
		t.Fatalf("set to-driver length: %v", err)
	}
	if err := md.SetToClientsBufferLength(2048); err != nil {
		t.Fatalf("set to-clients length: %v", err)
	}
	if err := md.SetCountersMetadataBufferLength(512); err != nil {
		t.Fatalf("set counters metadata length: %v", err)
	}
	if err := md.SetCountersValuesBufferLength(256); err != nil {
		t.Fatalf("set counters values length: %v", err)
	}
	if err := md.SetErrorLogBufferLength(128); err != nil {
		t.Fatalf("set error log length: %v", err)
	}
	if err := md.SetClientLivenessTimeoutNs(5_000_000_000); err != nil {
		t.Fatalf("set liveness timeout: %v", err)
	}
	if err := md.SetStartTimestampMs(1_700_000_000_000); err != nil {
		t.Fatalf("set start timestamp: %v", err)
	}
	if err := md.SetPID(4242); err != nil {
		t.Fatalf("set pid: %v", err)
	}
	if err := md.SetCncVersion(Version); err != nil {
		t.Fatalf("set version: %v", err)
	}

	if got, _ := md.ToDriverBufferLength(); got != 1024 {
		t.Fatalf("got to-driver length %d, want 1024", got)
	}
	if got, _ := md.ToClientsBufferLength(); got != 2048 {
		t.Fatalf("got to-clients length %d, want 2048", got)
	}
	if got, _ := md.CountersMetadataBufferLength(); got != 512 {
		t.Fatalf("got counters metadata length %d, want 512", got)
	}
	if got, _ := md.CountersValuesBufferLength(); got != 256 {
		t.Fatalf("got counters values length %d, want 256", got)
	}
	if got, _ := md.ErrorLogBufferLength(); got != 128 {
		t.Fatalf("got error log length %d, want 128", got)
	}
	if got, _ := md.ClientLivenessTimeoutNs(); got != 5_000_000_000 {
		t.Fatalf("got liveness timeout %d, want 5000000000", got)
	}
	if got, _ := md.StartTimestampMs(); got != 1_700_000_000_000 {
		t.Fatalf("got start timestamp %d, want 1700000000000", got)
	}
	if got, _ := md.PID(); got != 4242 {
		t.Fatalf("got pid %d, want 4242", got)
	}
	if got, _ := md.CncVersion(); got != Version {
		t.Fatalf("got version %d, want %d", got, Version)
	}
}

func TestNewMetaDataRejectsShortRegion(t *testing.T) {
	if _, err := NewMetaData(make([]byte, MetaDataLength-1)); err == nil {
		t.Fatalf("expected error for undersized region")
	}
}

func TestComputeLayoutOrdersRegionsAfterMetaData(t *testing.T) {
	region := make([]byte, MetaDataLength)
	md, err := NewMetaData(region)
	if err != nil {
		t.Fatalf("new metadata: %v", err)
	}
	md.SetToDriverBufferLength(100)
	md.SetToClientsBufferLength(200)
	md.SetCountersMetadataBufferLength(50)
	md.SetCountersValuesBufferLength(25)
	md.SetErrorLogBufferLength(10)

	layout, err := ComputeLayout(md)
	if err != nil {
		t.Fatalf("compute layout: %v", err)
	}

	if layout.ToDriverBuffer[0] != MetaDataLength {
		t.Fatalf("got to-driver start %d, want %d", layout.ToDriverBuffer[0], MetaDataLength)
	}
	if layout.ToDriverBuffer[1] != MetaDataLength+100 {
		t.Fatalf("got to-driver end %d, want %d", layout.ToDriverBuffer[1], MetaDataLength+100)
	}
	if layout.ToClientsBuffer[0] != layout.ToDriverBuffer[1] {
		t.Fatalf("to-clients buffer does not immediately follow to-driver buffer")
	}
	if layout.ToClientsBuffer[1]-layout.ToClientsBuffer[0] != 200 {
		t.Fatalf("got to-clients length %d, want 200", layout.ToClientsBuffer[1]-layout.ToClientsBuffer[0])
	}
	if layout.CountersMetadataBuffer[0] != layout.ToClientsBuffer[1] {
		t.Fatalf("counters metadata buffer does not immediately follow to-clients buffer")
	}
	if layout.CountersValuesBuffer[0] != layout.CountersMetadataBuffer[1] {
		t.Fatalf("counters values buffer does not immediately follow counters metadata buffer")
	}
	if layout.ErrorLogBuffer[0] != layout.CountersValuesBuffer[1] {
		t.Fatalf("error log buffer does not immediately follow counters values buffer")
	}
	if TotalLength(layout) != layout.ErrorLogBuffer[1] {
		t.Fatalf("total length does not match error log buffer end")
	}
}

func TestRegionSlicingHelpersMatchLayout(t *testing.T) {
	mdRegion := make([]byte, MetaDataLength)
	md, err := NewMetaData(mdRegion)
	if err != nil {
		t.Fatalf("new metadata: %v", err)
	}
	md.SetToDriverBufferLength(16)
	md.SetToClientsBufferLength(16)
	md.SetCountersMetadataBufferLength(16)
	md.SetCountersValuesBufferLength(16)
	md.SetErrorLogBufferLength(16)

	layout, err := ComputeLayout(md)
	if err != nil {
		t.Fatalf("compute layout: %v", err)
	}

	full := make([]byte, TotalLength(layout))
	copy(full, mdRegion)

	if got := len(ToDriverBuffer(full, layout)); got != 16 {
		t.Fatalf("to-driver buffer length %d, want 16", got)
	}
	if got := len(ToClientsBuffer(full, layout)); got != 16 {
		t.Fatalf("to-clients buffer length %d, want 16", got)
	}
	if got := len(CountersMetadataBuffer(full, layout)); got != 16 {
		t.Fatalf("counters metadata buffer length %d, want 16", got)
	}
	if got := len(CountersValuesBuffer(full, layout)); got != 16 {
		t.Fatalf("counters values buffer length %d, want 16", got)
	}
	if got := len(ErrorLogBuffer(full, layout)); got != 16 {
		t.Fatalf("error log buffer length %d, want 16", got)
	}
}
