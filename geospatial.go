package odata

import (
	"fmt"
	"sync/atomic"
)

// GeoEncoding selects how geopoint, geotrace and geoshape values are rendered
// when a request does not say so with $wkt.
type GeoEncoding int32

const (
	// GeoJSON renders geo values as GeoJSON objects.
	GeoJSON GeoEncoding = iota
	// WKT renders geo values as Well-Known Text strings.
	WKT
)

func (e GeoEncoding) String() string {
	switch e {
	case GeoJSON:
		return "geojson"
	case WKT:
		return "wkt"
	default:
		return fmt.Sprintf("GeoEncoding(%d)", int32(e))
	}
}

// ParseGeoEncoding parses "geojson" or "wkt".
func ParseGeoEncoding(s string) (GeoEncoding, error) {
	switch s {
	case "geojson", "":
		return GeoJSON, nil
	case "wkt":
		return WKT, nil
	}
	return GeoJSON, fmt.Errorf("unknown geo encoding %q", s)
}

// SetGeoEncoding sets the default geo rendering of every feed served by the
// service. Requests can still choose per call with $wkt=true or $wkt=false.
//
// Example:
//
//	service, err := odata.NewService(odata.ServiceConfig{})
//	if err != nil {
//		log.Fatalf("Failed to create service: %v", err)
//	}
//	if err := service.SetGeoEncoding(odata.WKT); err != nil {
//		log.Fatalf("Failed to set geo encoding: %v", err)
//	}
func (s *Service) SetGeoEncoding(encoding GeoEncoding) error {
	if encoding != GeoJSON && encoding != WKT {
		return fmt.Errorf("odata: unsupported geo encoding %s", encoding)
	}
	atomic.StoreInt32(&s.geoEncoding, int32(encoding))
	s.logger.Debug("Set default geo encoding", "encoding", encoding.String())

	s.handlersMu.RLock()
	defer s.handlersMu.RUnlock()
	for _, handler := range s.handlers {
		handler.SetDefaultWKT(encoding == WKT)
	}
	return nil
}

// GeoEncoding returns the service's default geo rendering.
func (s *Service) GeoEncoding() GeoEncoding {
	return GeoEncoding(atomic.LoadInt32(&s.geoEncoding))
}
