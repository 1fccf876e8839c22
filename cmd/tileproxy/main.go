package main

import "github.com/geowidget/tilefetch/internal/app"

func main() {
	app.Run()
}
