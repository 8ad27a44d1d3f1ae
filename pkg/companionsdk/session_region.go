package companionsdk

import "context"

func (s *Session) ListRegions(ctx context.Context) ([]Region, error) {
	var regions []Region
	if err := s.getJSON(ctx, "/api/regions", &regions); err != nil {
		return nil, err
	}
	return regions, nil
}
