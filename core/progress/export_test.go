package progress

// NowFunc lets the external tests move the clock.
var NowFunc = &nowFunc
