package location

import "strings"

// venueKeywords is checked in order; the first hit wins.
var venueKeywords = []struct {
	kind  VenueType
	words []string
}{
	{VenueTheater, []string{"theater", "theatre", "playhouse", "opera", "cinema", "auditorium"}},
	{VenueArena, []string{"arena", "stadium", "coliseum", "ballpark", "amphitheater"}},
	{VenueClub, []string{"club", "lounge", "bar", "pub", "tavern", "nightclub"}},
	{VenueRestaurant, []string{"restaurant", "cafe", "bistro", "diner", "grill", "kitchen", "brewery"}},
	{VenueGallery, []string{"gallery", "museum", "studio"}},
	{VenueOutdoor, []string{"park", "garden", "gardens", "beach", "plaza", "square", "field", "outdoor"}},
	{VenueHotel, []string{"hotel", "inn", "resort", "motel"}},
	{VenueChurch, []string{"church", "cathedral", "chapel", "temple", "mosque", "synagogue"}},
	{VenueSchool, []string{"school", "university", "college", "academy", "campus"}},
	{VenueLibrary, []string{"library"}},
	{VenueConference, []string{"conference", "convention", "expo", "summit"}},
}

// ClassifyVenue derives a VenueType from the venue name and address.
func ClassifyVenue(name, address string) VenueType {
	words := strings.Fields(Fold(name + " " + address))
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[w] = struct{}{}
	}
	for _, vk := range venueKeywords {
		for _, w := range vk.words {
			if _, ok := set[w]; ok {
				return vk.kind
			}
		}
	}
	return VenueDefault
}
