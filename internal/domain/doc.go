// Package domain models NYC Taxi & Limousine Commission (TLC) trip records
// and the hourly pickup time series derived from them.
//
// # Data Source
//
// Trip records are published monthly as parquet files at
// https://d37ci6vzurychx.cloudfront.net/trip-data/, one file per dataset and
// month, e.g. "yellow_tripdata_2023-02.parquet". Only two columns are used:
//
//	tpep_pickup_datetime  INT64 TIMESTAMP, naive NYC wall-clock time
//	PULocationID          INT32/INT64 TLC taxi zone identifier (1-265)
//
// Green taxi files name the timestamp "lpep_pickup_datetime"; the source
// column names are configurable and mapped onto the canonical schema
// (pickup_datetime, pickup_location_id).
//
// # Time Handling
//
// Pickup timestamps carry no zone. They are decoded as UTC instants so that
// hour truncation and month boundaries are plain wall-clock arithmetic with no
// DST gaps or repeated hours.
//
// # Month Window
//
// Every monthly file contains a small number of stray trips dated outside the
// month (clock errors on meters, trips from years earlier). [FilterToMonth]
// keeps only events in [Month.Start, Month.End).
//
// # Dense Grid
//
// Downstream consumers expect a regular series: one row per pickup location
// per hour over the whole observed range, with zero for hours that had no
// pickups. [AggregateHourly] produces the sparse observations and [Densify]
// fills the grid. The hour axis is global across locations, not per location.
package domain
