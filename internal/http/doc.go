// Package http exposes the booking services over a chi router.
//
// Endpoints:
//   - POST /v1/{role}/sessions signs in with {"email","password"}; POST
//     /v1/{role}/users signs up and provisions the profile. Both return the
//     session JSON and the token in X-Session-Token.
//   - GET, DELETE /v1/{role}/sessions/current and POST
//     /v1/{role}/sessions/current/refresh act on the bearer token's session.
//   - GET /v1/events upgrades to a websocket that pushes session events for
//     the bearer token's principal. Browsers may pass ?access_token=.
//   - GET /v1/profiles/me and GET, POST, PUT /v1/profiles/{role}/{id}.
//   - GET /v1/instructors/{id}, /slots?date= and /occupancy?date= are public;
//     PUT /settings and /availability need the instructor or an admin.
//   - GET, POST /v1/bookings, GET /v1/bookings/{id} and POST
//     /v1/bookings/{id}/{accept,reject,cancel,payment,payment/confirm,complete,rating}.
//   - GET /metrics and GET /healthz.
//
// Failures use {"error_code","message","errors","retryable"}; error_code is
// the upper-cased domain error kind.
package http
