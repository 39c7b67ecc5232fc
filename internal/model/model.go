// Package model contains the domain models shared by the repository, service and HTTP layers.
// Models carry json tags for the API and db tags for sqlx; there is no business logic here
// beyond the order status rules.
package model
