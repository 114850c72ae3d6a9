package catalog

import "github.com/BTreeMap/FastCab/internal/models"

var lagosLocations = []models.Location{
	{Key: "ikoyi", Name: "Ikoyi", Lat: 6.4511, Lng: 3.4372, HasCoordinates: true},
	{Key: "victoria island", Name: "Victoria Island", Lat: 6.4281, Lng: 3.4219, HasCoordinates: true},
	{Key: "lekki", Name: "Lekki", Lat: 6.4698, Lng: 3.5852, HasCoordinates: true},
	{Key: "surulere", Name: "Surulere", Lat: 6.5027, Lng: 3.3635, HasCoordinates: true},
	{Key: "ikeja", Name: "Ikeja", Lat: 6.6018, Lng: 3.3515, HasCoordinates: true},
	{Key: "yaba", Name: "Yaba", Lat: 6.5158, Lng: 3.3696, HasCoordinates: true},
	{Key: "lagos island", Name: "Lagos Island", Lat: 6.4541, Lng: 3.3947, HasCoordinates: true},
	{Key: "apapa", Name: "Apapa", Lat: 6.4474, Lng: 3.3594, HasCoordinates: true},
	{Key: "ajah", Name: "Ajah", Lat: 6.4698, Lng: 3.6043, HasCoordinates: true},
}

var lagosAliases = map[string]string{
	"vi":            "victoria island",
	"v.i":           "victoria island",
	"v/i":           "victoria island",
	"v.i.":          "victoria island",
	"lag island":    "lagos island",
	"ikeja gra":     "ikeja",
	"lekki phase 1": "lekki",
}

var defaultRideClasses = []models.RideClass{
	{Key: "economy", Name: "🚗 Economy", Description: "Affordable rides for everyday trips", BaseFare: 600, PerKmRate: 120},
	{Key: "comfort", Name: "🚙 Comfort", Description: "More space and newer vehicles", BaseFare: 900, PerKmRate: 180},
	{Key: "premium", Name: "🚕 Premium", Description: "Luxury vehicles with top-rated drivers", BaseFare: 1500, PerKmRate: 250},
}

var demoDrivers = []models.Driver{
	{ID: 1, Name: "John Doe", Phone: "+2347012345671", VehicleMake: "Toyota", VehicleModel: "Corolla", PlateNumber: "LAG-123-AB", Rating: 4.8, TotalTrips: 245},
	{ID: 2, Name: "Mary Johnson", Phone: "+2347012345672", VehicleMake: "Honda", VehicleModel: "Civic", PlateNumber: "LAG-456-CD", Rating: 4.9, TotalTrips: 189},
	{ID: 3, Name: "David Wilson", Phone: "+2347012345673", VehicleMake: "Toyota", VehicleModel: "Camry", PlateNumber: "LAG-789-EF", Rating: 4.7, TotalTrips: 312},
}
