package db

// Store names one of the record stores (tables) of the ledger.
type Store string

const (
	StoreCustomers    Store = "customers"
	StoreProducts     Store = "products"
	StoreSuppliers    Store = "suppliers"
	StoreOrders       Store = "orders"
	StoreTrips        Store = "trips"
	StoreTripExpenses Store = "trip_expenses"
	StorePayments     Store = "payments"
)

// AllStores lists every entity store in dependency order.
var AllStores = []Store{
	StoreCustomers,
	StoreProducts,
	StoreSuppliers,
	StoreOrders,
	StoreTrips,
	StoreTripExpenses,
	StorePayments,
}

// ParseStore resolves a store name as used in URLs and CLI flags.
func ParseStore(name string) (Store, bool) {
	for _, s := range AllStores {
		if string(s) == name {
			return s, true
		}
	}
	if name == "trip-expenses" {
		return StoreTripExpenses, true
	}
	return "", false
}
