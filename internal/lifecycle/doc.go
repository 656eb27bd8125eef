// Package lifecycle stands in for the browser's service-worker runtime. A
// Registration owns worker instances and their states, runs install and
// activate jobs one at a time, routes page fetches to the controlling
// instance and publishes updatefound/statechange/controllerchange events.
// Workers never set their own state; they can only request promotion via
// worker.Scope.SkipWaiting.
package lifecycle
