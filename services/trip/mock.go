package trip

import "tripbot/models"

// The fixed catalog served in test mode. Prices and schedules mirror
// the provider's sandbox data so flows can be exercised end to end.

func mockOffers(kind string, criteria map[string]string) []models.Offer {
	switch kind {
	case models.KindFlight:
		return mockFlights(criteria)
	case models.KindHotel:
		return mockHotels(criteria)
	case models.KindTour:
		return mockTours()
	}
	return nil
}

func mockFlights(criteria map[string]string) []models.Offer {
	from := criteria["from_city"]
	to := criteria["to_city"]
	depart := criteria["depart_date"]

	return normalizeFlights([]flightResult{
		{
			FlightID:      "ET001",
			Airline:       "Ethiopian Airlines",
			FromCity:      from,
			ToCity:        to,
			DepartureTime: depart + "T08:00:00Z",
			ArrivalTime:   depart + "T12:30:00Z",
			Duration:      "4h 30m",
			Stops:         0,
			FlightNumber:  "ET-302",
			PriceUSD:      450.00,
			Class:         "Economy",
		},
		{
			FlightID:      "KQ002",
			Airline:       "Kenya Airways",
			FromCity:      from,
			ToCity:        to,
			DepartureTime: depart + "T14:00:00Z",
			ArrivalTime:   depart + "T18:45:00Z",
			Duration:      "4h 45m",
			Stops:         0,
			FlightNumber:  "KQ-442",
			PriceUSD:      380.00,
			Class:         "Economy",
		},
		{
			FlightID:      "TK003",
			Airline:       "Turkish Airlines",
			FromCity:      from,
			ToCity:        to,
			DepartureTime: depart + "T22:00:00Z",
			ArrivalTime:   depart + "T06:30:00Z",
			Duration:      "8h 30m",
			Stops:         1,
			FlightNumber:  "TK-724",
			PriceUSD:      520.00,
			Class:         "Economy",
		},
	})
}

func mockHotels(criteria map[string]string) []models.Offer {
	city := criteria["city"]
	checkin := criteria["checkin_date"]
	checkout := criteria["checkout_date"]

	return normalizeHotels([]hotelResult{
		{
			HotelID:      "H001",
			Name:         "Skylight Hotel " + city,
			Address:      "Main Street, " + city,
			City:         city,
			Rating:       4.5,
			CheckinDate:  checkin,
			CheckoutDate: checkout,
			RoomType:     "Deluxe Room",
			PriceUSD:     120.00,
			Amenities:    "WiFi, Breakfast, Pool",
		},
		{
			HotelID:      "H002",
			Name:         "Grand Palace Hotel",
			Address:      "City Center, " + city,
			City:         city,
			Rating:       5.0,
			CheckinDate:  checkin,
			CheckoutDate: checkout,
			RoomType:     "Executive Suite",
			PriceUSD:     250.00,
			Amenities:    "WiFi, Breakfast, Pool, Spa, Gym",
		},
		{
			HotelID:      "H003",
			Name:         "Budget Inn " + city,
			Address:      "Airport Road, " + city,
			City:         city,
			Rating:       3.5,
			CheckinDate:  checkin,
			CheckoutDate: checkout,
			RoomType:     "Standard Room",
			PriceUSD:     65.00,
			Amenities:    "WiFi, Breakfast",
		},
		{
			HotelID:      "H004",
			Name:         "Hilltop Resort",
			Address:      "Mountain View, " + city,
			City:         city,
			Rating:       4.8,
			CheckinDate:  checkin,
			CheckoutDate: checkout,
			RoomType:     "Villa",
			PriceUSD:     350.00,
			Amenities:    "WiFi, Breakfast, Pool, Spa, Gym, Restaurant",
		},
	})
}

func mockTours() []models.Offer {
	return normalizeTours([]tourResult{
		{
			TourID:       "T001",
			Name:         "Historic Route of Ethiopia",
			Destination:  "Ethiopia",
			Category:     "Cultural",
			DurationDays: 8,
			Description:  "Visit Lalibela, Axum, Gondar and Bahir Dar",
			PriceUSD:     1200.00,
			Includes:     "Accommodation, Transport, Guide, Meals",
		},
		{
			TourID:       "T002",
			Name:         "Simien Mountains Trek",
			Destination:  "Ethiopia",
			Category:     "Adventure",
			DurationDays: 5,
			Description:  "Trekking in UNESCO World Heritage Site",
			PriceUSD:     850.00,
			Includes:     "Camping, Guide, Meals, Transport",
		},
		{
			TourID:       "T003",
			Name:         "Omo Valley Cultural Tour",
			Destination:  "Ethiopia",
			Category:     "Cultural",
			DurationDays: 7,
			Description:  "Explore traditional tribes and cultures",
			PriceUSD:     1100.00,
			Includes:     "Accommodation, Guide, Transport, Permits",
		},
		{
			TourID:       "T004",
			Name:         "Danakil Depression Adventure",
			Destination:  "Ethiopia",
			Category:     "Adventure",
			DurationDays: 4,
			Description:  "Visit one of the hottest places on Earth",
			PriceUSD:     950.00,
			Includes:     "Camping, Guide, Transport, Meals",
		},
		{
			TourID:       "T005",
			Name:         "East African Safari",
			Destination:  "Kenya & Tanzania",
			Category:     "Wildlife",
			DurationDays: 10,
			Description:  "Serengeti, Masai Mara, and Ngorongoro Crater",
			PriceUSD:     2500.00,
			Includes:     "Accommodation, Transport, Guide, Meals, Park Fees",
		},
	})
}
