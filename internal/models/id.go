package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// NewID returns a fresh 24-character hex object id. Ids keep the same shape
// whichever store backs the service.
func NewID() string {
	return primitive.NewObjectID().Hex()
}
