package bookings

import (
	"kitchenhub/internal/shared/utils/response"
)

// GroupListResponse is a page of booking groups
type GroupListResponse struct {
	Groups     []BookingGroup          `json:"groups"`
	Pagination response.PaginationMeta `json:"pagination"`
}

func NewGroupListResponse(groups []BookingGroup, total int64, query ListQuery) GroupListResponse {
	query = query.normalized()
	if groups == nil {
		groups = []BookingGroup{}
	}
	return GroupListResponse{
		Groups: groups,
		Pagination: response.PaginationMeta{
			Page:       query.Page,
			Limit:      query.Limit,
			TotalCount: total,
			TotalPages: CalculateTotalPages(total, query.Limit),
		},
	}
}
